package cache

// Link keys
func KeyLink(token string) string {
	return Key("links", token)
}
