/*
Package serializer implements the tagged value codec shared by all LocalZure
state backends.

Every stored value is prefixed with a one-byte format tag:

	J  UTF-8 JSON for strings, numbers, booleans, nil, slices and maps
	P  opaque bytes, stored verbatim

Because the tag travels with the value, a value written through one backend
deserializes to the same shape when read through any other, which is what
makes snapshots portable between the memory, Redis and Bolt backends.
*/
package serializer
