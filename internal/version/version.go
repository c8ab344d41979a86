// Package version carries build identification, overridable via ldflags.
package version

var (
	Version = "0.1.0"
	Commit  = "dev"
)

func String() string {
	return "courserag " + Version + " (" + Commit + ")"
}
