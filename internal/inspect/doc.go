// Package inspect derives metadata from downloaded image bytes.
//
// An Inspector computes the SHA3-256 digest and size of every payload, decodes
// raster formats for their dimensions, and reads the EXIF block when one is
// present. Inspection never fails: whatever cannot be learned is left empty.
package inspect
