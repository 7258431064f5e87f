// Package extract unpacks the two archive layers of a release.
//
// The outer tar is staged under releases/release-<id>/ and each staged
// per-record zip is unpacked into patents/<record>/. Every file lands via a
// temp file and rename, so an existing file is always complete and is
// skipped on retry. Staged zips are kept until their record is catalogued;
// Discard removes them.
package extract
