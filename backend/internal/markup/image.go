package markup

// 加载中占位图在缓冲区中的宽度。上传完成/失败时按这个宽度删除占位图
const PlaceholderWidth = 3

const (
	ImageBlotName        = "image"
	LoadingImageBlotName = "loading-image"
)

type ImageBlot struct{}

func (ImageBlot) BlotName() string { return ImageBlotName }
func (ImageBlot) TagName() string  { return "img" }
func (ImageBlot) Width() int       { return 1 }

func (ImageBlot) Create(url string) Element {
	return Element{Tag: "img", Attrs: map[string]string{"src": url}}
}

// LoadingImageBlot 是上传过程中显示本地预览（data URL）的占位图
type LoadingImageBlot struct{}

func (LoadingImageBlot) BlotName() string { return LoadingImageBlotName }
func (LoadingImageBlot) TagName() string  { return "span" }
func (LoadingImageBlot) Width() int       { return PlaceholderWidth }

func (LoadingImageBlot) Create(src string) Element {
	attrs := map[string]string{"class": "image-uploading"}
	if src != "" {
		attrs["data-src"] = src
	}
	return Element{Tag: "span", Attrs: attrs}
}
