// Package header provides the implementation of the encoding and decoding of
// network protocol headers
package header
