// Package models defines the domain types for lifepress.
package models

// StoredFile is a file as known to the content store.
type StoredFile struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Entry is one item of a directory listing.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDir       bool   `json:"is_dir"`
	SHA         string `json:"sha,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}
