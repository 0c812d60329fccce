package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkdrop/linkdrop/internal/cache"
	"github.com/linkdrop/linkdrop/internal/config"
	"github.com/linkdrop/linkdrop/internal/database"
	"github.com/linkdrop/linkdrop/pkg/hardlink"
	"github.com/linkdrop/linkdrop/pkg/models"
	"github.com/linkdrop/linkdrop/pkg/ratelimit"
	"github.com/linkdrop/linkdrop/pkg/resolver"
	"github.com/linkdrop/linkdrop/pkg/store"
	"github.com/stretchr/testify/suite"
)

type LinkServiceSuite struct {
	suite.Suite
	srv   *apiService
	cnf   *config.ServerCmdConfig
	root  string
	ctx   context.Context
	clock time.Time
}

func (s *LinkServiceSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.cnf = &config.ServerCmdConfig{
		Storage: config.StorageConfig{Root: s.root},
		Link: config.LinkConfig{
			TempDir:   filepath.Join(s.root, ".linkdrop-tmp"),
			TTL:       time.Hour,
			MaxActive: 100,
			TokenSize: 32,
		},
	}

	db := database.NewTestDatabase(s.T())
	s.Require().NoError(store.Migrate(db))

	fileResolver, err := resolver.NewLocal(s.root)
	s.Require().NoError(err)

	s.srv = NewApiService(s.cnf, store.NewGormStore(db), fileResolver,
		hardlink.NewManager(), ratelimit.NewNoop(), cache.NewMemoryCache(1024*1024))

	s.clock = time.Now().UTC()
	s.srv.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *LinkServiceSuite) writeFile(name string, size int) string {
	s.T().Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(s.root, name)
	s.Require().NoError(os.WriteFile(path, data, 0o600))
	return name
}

func (s *LinkServiceSuite) errCode(err error) ErrorCode {
	var ae *apiError
	s.Require().True(errors.As(err, &ae), "expected an apiError, got %v", err)
	return ae.CodeTag()
}

func TestLinkServiceSuite(t *testing.T) {
	suite.Run(t, new(LinkServiceSuite))
}

func (s *LinkServiceSuite) TestCreate() {
	s.writeFile("report.bin", 1024)

	out, err := s.srv.CreateLink(s.ctx, "alice", "report.bin")
	s.Require().NoError(err)

	s.True(s.srv.tokens.IsWellFormed(out.Token))
	s.Equal("report.bin", out.Filename)
	s.EqualValues(1024, out.FileSize)
	s.Equal("alice", out.CreatedBy)
	s.Equal(statusActive, out.Status)
	s.Contains(out.DownloadURL, "/downloads/"+out.Token)
	s.True(out.ExpiresAt.After(out.CreatedAt))

	// the hard link exists and shares data with the source
	linkPath := filepath.Join(s.cnf.Link.TempDir, out.Token)
	fi, statErr := os.Stat(linkPath)
	s.Require().NoError(statErr)
	s.EqualValues(1024, fi.Size())
	s.Equal(2, s.srv.links.LinkCount(linkPath))
}

func (s *LinkServiceSuite) TestCreateDirectoryRejected() {
	s.Require().NoError(os.Mkdir(filepath.Join(s.root, "docs"), 0o755))

	_, err := s.srv.CreateLink(s.ctx, "alice", "docs")
	s.Equal(CodeValidation, s.errCode(err))
}

func (s *LinkServiceSuite) TestCreateMissingFile() {
	_, err := s.srv.CreateLink(s.ctx, "alice", "nope.bin")
	s.Equal(CodeNotFound, s.errCode(err))
}

func (s *LinkServiceSuite) TestCreateCapReached() {
	s.cnf.Link.MaxActive = 2
	s.writeFile("a.bin", 10)
	s.writeFile("b.bin", 10)
	s.writeFile("c.bin", 10)

	_, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)
	_, err = s.srv.CreateLink(s.ctx, "alice", "b.bin")
	s.Require().NoError(err)

	_, err = s.srv.CreateLink(s.ctx, "alice", "c.bin")
	s.Equal(CodeValidation, s.errCode(err))

	// once the active count drops below the cap, creation works again
	s.clock = s.clock.Add(2 * time.Hour)
	_, err = s.srv.CleanupExpired(s.ctx)
	s.Require().NoError(err)

	_, err = s.srv.CreateLink(s.ctx, "alice", "c.bin")
	s.NoError(err)
}

func (s *LinkServiceSuite) TestStatus() {
	s.writeFile("a.bin", 512)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	got, err := s.srv.LinkStatus(s.ctx, out.Token)
	s.Require().NoError(err)
	s.Equal(out.Token, got.Token)
	s.EqualValues(512, got.FileSize)
	s.Equal(statusActive, got.Status)
}

func (s *LinkServiceSuite) TestStatusMalformedToken() {
	_, err := s.srv.LinkStatus(s.ctx, "!!not-a-token!!")
	s.Equal(CodeNotFound, s.errCode(err))
}

func (s *LinkServiceSuite) TestStatusUnknownToken() {
	unknown, err := s.srv.tokens.Generate()
	s.Require().NoError(err)

	_, serr := s.srv.LinkStatus(s.ctx, unknown)
	s.Equal(CodeNotFound, s.errCode(serr))
}

// failingStore simulates a database outage on lookups.
type failingStore struct {
	store.LinkStore
}

func (failingStore) FindByToken(ctx context.Context, tok string) (*models.Link, error) {
	return nil, errors.New("disk I/O error")
}

func (s *LinkServiceSuite) TestStatusStoreFailureIsInternal() {
	tok, err := s.srv.tokens.Generate()
	s.Require().NoError(err)

	s.srv.store = failingStore{s.srv.store}

	// a backend failure must not masquerade as an unknown token
	_, serr := s.srv.LinkStatus(s.ctx, tok)
	s.Equal(CodeInternal, s.errCode(serr))

	_, _, derr := s.srv.ResolveForDownload(s.ctx, tok, "10.0.0.1", "")
	s.Equal(CodeInternal, s.errCode(derr))
}

func (s *LinkServiceSuite) TestStatusExpired() {
	s.writeFile("a.bin", 512)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	s.clock = s.clock.Add(2 * time.Hour)

	_, serr := s.srv.LinkStatus(s.ctx, out.Token)
	s.Equal(CodeNotFound, s.errCode(serr))

	// the link may still physically exist until the next cleanup pass
	_, statErr := os.Stat(filepath.Join(s.cnf.Link.TempDir, out.Token))
	s.NoError(statErr)
}

func (s *LinkServiceSuite) TestResolveForDownload() {
	s.writeFile("a.bin", 1024)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	record, f, err := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.1", "")
	s.Require().NoError(err)
	defer f.Close()

	s.Equal(out.Token, record.Token)
	data, readErr := io.ReadAll(f)
	s.Require().NoError(readErr)
	s.Len(data, 1024)
}

func (s *LinkServiceSuite) TestResolveForDownloadLinkGone() {
	s.writeFile("a.bin", 64)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	// the link vanishes from disk while the record still looks active
	s.Require().NoError(os.Remove(filepath.Join(s.cnf.Link.TempDir, out.Token)))

	_, _, derr := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.1", "")
	s.Equal(CodeNotFound, s.errCode(derr))
	s.ErrorIs(derr, ErrFileGone)
}

func (s *LinkServiceSuite) TestResolveForDownloadExpired() {
	s.writeFile("a.bin", 64)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	s.clock = s.clock.Add(2 * time.Hour)

	_, _, derr := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.1", "")
	s.Equal(CodeNotFound, s.errCode(derr))
}

func (s *LinkServiceSuite) TestResolveForDownloadRateLimited() {
	s.srv.limiter = ratelimit.New(&config.RateLimitConfig{
		Enable: true,
		IP:     config.RateDimension{Enable: true, Requests: 2, Window: time.Minute},
	})

	s.writeFile("a.bin", 64)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	for i := 0; i < 2; i++ {
		_, f, derr := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.9", "")
		s.Require().NoError(derr)
		f.Close()
	}

	_, _, derr := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.9", "")
	s.Equal(CodeRateLimited, s.errCode(derr))

	// another client is unaffected
	_, f, derr := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.10", "")
	s.Require().NoError(derr)
	f.Close()
}

func (s *LinkServiceSuite) TestDownloadSurvivesCleanup() {
	s.writeFile("a.bin", 256)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	_, f, err := s.srv.ResolveForDownload(s.ctx, out.Token, "10.0.0.1", "")
	s.Require().NoError(err)
	defer f.Close()

	// cleanup removes the link while the download holds its own handle
	s.clock = s.clock.Add(2 * time.Hour)
	_, err = s.srv.CleanupExpired(s.ctx)
	s.Require().NoError(err)

	data, readErr := io.ReadAll(f)
	s.Require().NoError(readErr)
	s.Len(data, 256)
}

func (s *LinkServiceSuite) TestCleanup() {
	s.writeFile("a.bin", 10)
	s.writeFile("b.bin", 10)
	s.writeFile("c.bin", 10)

	oldA, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)
	oldB, err := s.srv.CreateLink(s.ctx, "alice", "b.bin")
	s.Require().NoError(err)

	s.clock = s.clock.Add(2 * time.Hour)
	fresh, err := s.srv.CreateLink(s.ctx, "alice", "c.bin")
	s.Require().NoError(err)

	cleaned, err := s.srv.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, cleaned)

	for _, tok := range []string{oldA.Token, oldB.Token} {
		_, statErr := os.Stat(filepath.Join(s.cnf.Link.TempDir, tok))
		s.True(os.IsNotExist(statErr))
	}
	_, statErr := os.Stat(filepath.Join(s.cnf.Link.TempDir, fresh.Token))
	s.NoError(statErr)

	// a second pass finds nothing left
	cleaned, err = s.srv.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, cleaned)
}

func (s *LinkServiceSuite) TestCleanupSkipsFailingRecord() {
	s.writeFile("a.bin", 10)
	s.writeFile("b.bin", 10)

	bad, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)
	good, err := s.srv.CreateLink(s.ctx, "alice", "b.bin")
	s.Require().NoError(err)

	// replace one link with a directory so its deletion fails
	badPath := filepath.Join(s.cnf.Link.TempDir, bad.Token)
	s.Require().NoError(os.Remove(badPath))
	s.Require().NoError(os.Mkdir(badPath, 0o755))

	s.clock = s.clock.Add(2 * time.Hour)
	cleaned, err := s.srv.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, cleaned)

	// the good link is gone, the failing one is left for a later pass
	_, statErr := os.Stat(filepath.Join(s.cnf.Link.TempDir, good.Token))
	s.True(os.IsNotExist(statErr))
	_, statErr = os.Stat(badPath)
	s.NoError(statErr)
}

func (s *LinkServiceSuite) TestSweepOrphans() {
	s.writeFile("a.bin", 10)
	out, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)

	stray := filepath.Join(s.cnf.Link.TempDir, "stray-file")
	s.Require().NoError(os.WriteFile(stray, []byte("x"), 0o600))

	s.Require().NoError(s.srv.SweepOrphans(s.ctx))

	_, statErr := os.Stat(stray)
	s.True(os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(s.cnf.Link.TempDir, out.Token))
	s.NoError(statErr)
}

func (s *LinkServiceSuite) TestCounts() {
	s.writeFile("a.bin", 10)
	s.writeFile("b.bin", 10)

	_, err := s.srv.CreateLink(s.ctx, "alice", "a.bin")
	s.Require().NoError(err)
	_, err = s.srv.CreateLink(s.ctx, "bob", "b.bin")
	s.Require().NoError(err)

	total, err := s.srv.ActiveCount(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(2, total)

	alice, err := s.srv.ActiveCountByUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.EqualValues(1, alice)

	list, err := s.srv.ActiveLinks(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1, list.Count)
	s.Equal("a.bin", list.Items[0].Filename)
}
