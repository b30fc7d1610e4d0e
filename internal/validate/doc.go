// Package validate coerces evaluated values to a property's declared type.
//
// Every type has a documented default. A failed validation returns the
// default together with a human-readable message so that consumers always
// have a defined value to read.
package validate
