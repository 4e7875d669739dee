// Package writer implements the top-of-book recorder.
//
// The stream session pushes BookSample values onto a Queue after each applied
// depth message. TopOfBookWriter drains the queue in batches into the
// book_samples table. Rows are append-only and never read back into the book.
// Prices and quantities are stored as integers scaled by 10^4.
package writer
