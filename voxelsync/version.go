package voxelsync

import "github.com/blang/semver"

// Version is the semantic version of the sync engine and its wire protocol.
// Peers with differing major versions may not interoperate; a mismatch is
// logged on join but does not tear down the session.
const Version = "1.0.0"

// SemVer returns the parsed engine version.
func SemVer() semver.Version {
	return semver.MustParse(Version)
}

// VersionCompatible reports whether a peer announcing the given version can
// interoperate with this engine.  Unparseable or empty versions are treated
// as compatible since older peers never sent one.
func VersionCompatible(peer string) bool {
	if peer == "" {
		return true
	}
	v, err := semver.Parse(peer)
	if err != nil {
		return true
	}
	return v.Major == SemVer().Major
}
