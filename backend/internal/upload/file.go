package upload

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// 粘贴时只接受这些图片类型
var pasteImageMIME = regexp.MustCompile(`(?i)^image/(jpe?g|gif|png|svg|webp)$`)

// File 是待上传的本地文件
type File struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// DataURL 返回用于本地预览的 base64 data URL
func (f File) DataURL() string {
	mime := f.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// isImage 对应文件选择框的 accept="image/*"
func (f File) isImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MIME), "image/")
}

func isPasteImage(mime string) bool { return pasteImageMIME.MatchString(mime) }
