package model

// Release is the subset of the GitHub release payload that bundlefetch uses.
type Release struct {
	TagName    string  `json:"tag_name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is the subset of the GitHub release asset payload that bundlefetch uses.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// BundleDescriptor locates one versioned engine bundle on disk and remotely.
// It is derived from a version and never persisted.
type BundleDescriptor struct {
	Version           string
	BundlePath        string // staging archive inside BundleDirectory
	BundleDownloadURL string
	BundleDirectory   string // version-namespaced extraction root
	ExecutablePath    string // engine entry point inside BundleDirectory
}

// Channel is an update channel for the editor extension package.
type Channel string

const (
	ChannelStable        Channel = "stable"
	ChannelBeta          Channel = "beta"
	ChannelProposedAlpha Channel = "proposed-alpha"
)
