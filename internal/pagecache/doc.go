// Package pagecache implements the single-page cache a vector file reads and
// writes its data pages through.
//
// Sequential access touches the same page many times in a row, so the cache
// holds exactly one attached page. When a dirty page is displaced it stays
// attached in a side map keyed by page ID; Drain releases both on flush or
// recover.
package pagecache
