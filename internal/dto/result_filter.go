// ResultFilters narrow the stored results listing.
package dto

type ResultFilters struct {
	Animal string
	Limit  int
	Offset int
}
