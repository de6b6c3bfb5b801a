// Package version carries build identity, stamped via -ldflags at release
// time.
package version

// Set with:
//
//	go build -ldflags "-X github.com/pairflow/pairflow/internal/version.Version=1.2.3 \
//	                   -X github.com/pairflow/pairflow/internal/version.Commit=abc1234"
var (
	Version = "0.1.0"
	Commit  = "dev"
)
