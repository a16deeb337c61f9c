package set

type (
	// Bits is a Bitmap keyed by an int-like type, such as a node id.
	Bits[K ~int | ~int32] struct {
		Bitmap
	}
)

func MakeBits[K ~int | ~int32](n int) Bits[K] {
	return Bits[K]{Bitmap: MakeBitmap(n)}
}

func (s *Bits[K]) Set(k K) { s.Bitmap.Set(int(k)) }

func (s *Bits[K]) IsSet(k K) bool {
	return k >= 0 && s.Bitmap.IsSet(int(k))
}
