// Package layout defines the on-page format of a vector file: the header
// record on page 0 and the arithmetic mapping keys to data-page slots.
//
// Key k lives on page k/elementsPerPage+1 at word (k%elementsPerPage) *
// (elementSize/4). A slot whose first word is 0xFFFFFFFF is empty.
package layout
