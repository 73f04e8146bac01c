package ether

// Convenience constructors mirroring the reference implementation's
// per-kind factory functions (original_source/xcp/ether.py's create_text,
// create_embedding, create_tokens, create_image), adapted to the tagged
// Value representation.

// NewText builds a "text" Ether wrapping a single string field.
func NewText(text string) *Ether {
	e := New("text", 1)
	e.Payload["text"] = String(text)
	return e
}

// NewEmbedding builds an "embedding" Ether from a flat float slice plus its
// shape. The values are stored as a Value list so the JSON codec preserves
// float precision; the tensor codecs read the same Payload["values"] and
// Payload["shape"] entries when encoding.
func NewEmbedding(vector []float32, shape []uint32) *Ether {
	e := New("embedding", 1)
	vals := make([]Value, len(vector))
	for i, f := range vector {
		vals[i] = Float(float64(f))
	}
	e.Payload["values"] = List(vals...)
	dims := make([]Value, len(shape))
	for i, d := range shape {
		dims[i] = Int(int64(d))
	}
	e.Payload["shape"] = List(dims...)
	return e
}

// NewTokens builds a "tokens" Ether from a token ID sequence and its
// vocabulary name.
func NewTokens(ids []int64, vocab string) *Ether {
	e := New("tokens", 1)
	vals := make([]Value, len(ids))
	for i, id := range ids {
		vals[i] = Int(id)
	}
	e.Payload["ids"] = List(vals...)
	e.Payload["vocab"] = String(vocab)
	return e
}

// NewImage builds an "image" Ether referencing image bytes as an
// attachment rather than inlining them in payload.
func NewImage(mediaType string, data []byte, width, height uint32) *Ether {
	e := New("image", 1)
	e.Payload["width"] = Int(int64(width))
	e.Payload["height"] = Int(int64(height))
	e.Attachments = append(e.Attachments, Attachment{
		ID:          "image",
		InlineBytes: data,
		MediaType:   mediaType,
		Codec:       "raw",
		SizeBytes:   uint64(len(data)),
	})
	return e
}
