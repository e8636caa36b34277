package markup

const (
	CommentBlotName     = "comment"
	DefaultCommentClass = "ql-wg-comment-wrapper"

	attrClass      = "class"
	attrComment    = "data-comment"
	attrSuggestion = "data-suggestion"
)

// CommentValue 是批注格式的逻辑值
type CommentValue struct {
	CommentID  string `json:"commentId"`
	Suggestion *bool  `json:"suggestion,omitempty"` // nil 表示不写 data-suggestion
}

// CommentFormat 把批注渲染成带 class 和 data-comment 属性的包裹元素。
// 建议（suggestion）批注额外带 data-suggestion="true"
type CommentFormat struct {
	Tag       string
	ClassName string
}

func NewCommentFormat() CommentFormat {
	return CommentFormat{Tag: "span", ClassName: DefaultCommentClass}
}

func (f CommentFormat) BlotName() string { return CommentBlotName }

func (f CommentFormat) TagName() string {
	if f.Tag == "" {
		return "span"
	}
	return f.Tag
}

func (f CommentFormat) className() string {
	if f.ClassName == "" {
		return DefaultCommentClass
	}
	return f.ClassName
}

func (f CommentFormat) Create(v CommentValue) Element {
	attrs := map[string]string{
		attrClass:   f.className(),
		attrComment: v.CommentID,
	}
	if v.Suggestion != nil {
		if *v.Suggestion {
			attrs[attrSuggestion] = "true"
		} else {
			attrs[attrSuggestion] = "false"
		}
	}
	return Element{Tag: f.TagName(), Attrs: attrs}
}

// Formats 从渲染结果读回格式对象，只读 data-comment 和 data-suggestion，缺失的属性不出现在结果里
func (f CommentFormat) Formats(e Element) map[string]string {
	out := make(map[string]string, 2)
	if v, ok := e.Attr(attrComment); ok {
		out["commentId"] = v
	}
	if v, ok := e.Attr(attrSuggestion); ok {
		out["suggestion"] = v
	}
	return out
}

// Value 是 Formats 的强类型版本；非 "true"/"false" 的 data-suggestion 当作缺失
func (f CommentFormat) Value(e Element) (CommentValue, bool) {
	id, ok := e.Attr(attrComment)
	if !ok {
		return CommentValue{}, false
	}
	v := CommentValue{CommentID: id}
	switch s, _ := e.Attr(attrSuggestion); s {
	case "true":
		b := true
		v.Suggestion = &b
	case "false":
		b := false
		v.Suggestion = &b
	}
	return v, true
}
