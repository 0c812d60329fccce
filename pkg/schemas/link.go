package schemas

import "time"

type LinkIn struct {
	FilePath string `json:"filePath" validate:"required,notblank"`
}

type LinkOut struct {
	Token       string    `json:"token"`
	DownloadURL string    `json:"downloadUrl"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"fileSize"`
	ContentType string    `json:"contentType"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type LinkList struct {
	Items []LinkOut `json:"items"`
	Count int       `json:"count"`
}
