// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the release tag for this build. It is reported to Sentry as the release.
// Inject via: -X github.com/garyellow/unibot-go/internal/buildinfo.Version=...
var Version = "dev"

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/unibot-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/garyellow/unibot-go/internal/buildinfo.BuildDate=...
var BuildDate = ""
