// Package filesystem serves host pages from a directory on disk.
//
// A Library lists every file under its root that matches a doublestar pattern (walked
// with fastwalk) and reads them back by slash-separated name. Reads never leave the root
// and only return content that sniffs as HTML.
package filesystem
