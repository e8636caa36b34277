package markup

import gonanoid "github.com/matoous/go-nanoid/v2"

const commentIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewCommentID 生成 9 位纯字母的批注 ID
func NewCommentID() (string, error) {
	return gonanoid.Generate(commentIDAlphabet, 9)
}
