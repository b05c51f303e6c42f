package token

// Iterator walks a token sequence. It can be reset and walked again.
type Iterator struct {
	tokens []Token
	pos    int
}

// NewIterator tokenizes s and returns an iterator over the result.
func NewIterator(s string) (*Iterator, error) {
	toks, err := Tokenize(s)
	if err != nil {
		return nil, err
	}
	return &Iterator{tokens: toks}, nil
}

// Next returns the next token, or false once the sequence is exhausted.
func (it *Iterator) Next() (Token, bool) {
	if it.pos >= len(it.tokens) {
		return Token{}, false
	}
	t := it.tokens[it.pos]
	it.pos++
	return t, true
}

// Reset rewinds the iterator to the first token.
func (it *Iterator) Reset() {
	it.pos = 0
}

// Len returns the total number of tokens.
func (it *Iterator) Len() int {
	return len(it.tokens)
}
