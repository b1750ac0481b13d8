package embedding

// Tokenizer turns review or query text into BERT-style model inputs
// (input_ids, attention_mask, token_type_ids) for the ONNX encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer hashes whitespace-split words into token IDs. It stands in
// when no trained vocabulary is shipped with the encoder; review text and the
// query are hashed the same way, which is all similarity search needs.
type SimpleTokenizer struct{}

// Tokenize splits text into words and emits padded token IDs up to maxTokens,
// with [CLS] and [SEP] markers in the usual positions.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := SplitWords(text)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, word := range words {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits review text on whitespace and returns the non-empty
// words. Cleaned review text is already lowercased and stripped of
// punctuation, so plain whitespace splitting is enough here.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString maps a word to a deterministic non-negative hash. Both the
// deterministic embedder and SimpleTokenizer derive token identity from it,
// so equal review words always land on the same dimension or ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
