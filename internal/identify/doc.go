// Package identify turns an uploaded recording into a species identification.
//
// A Pipeline normalizes the upload, runs the primary acoustic detector over a
// scratch WAV file and aggregates its per-segment detections. When the best
// aggregated species is not confident enough, the same scratch file is handed
// to a fallback classifier restricted to a small set of local species. Every
// run ends in exactly one Result variant and always removes its scratch file.
package identify
