// Package fixedpoint converts decimal strings from the exchange feed into
// integers scaled by 10^4.
//
// Conventions:
//   - One unit is 0.0001 ("101.5000" -> 1015000)
//   - Digits beyond the fourth decimal place are truncated toward zero
//   - Prices and quantities share the same scale
package fixedpoint
