// Package conv provides checked integer conversions for allocator geometry.
//
// Page indices, block indices and slot numbers are stored in narrow unsigned
// types. These helpers reject values that would wrap instead of silently
// truncating them, so a misconfigured size-class table or arena layout is
// reported at construction time rather than corrupting offsets later.
package conv
