package entity

import "time"

// Attachment 是上传图片的元数据，内容本身在 blob 存储里
type Attachment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocID     string    `gorm:"index;type:varchar(64)" json:"docId"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	MIME      string    `gorm:"type:varchar(127)" json:"mime"`
	Size      int64     `json:"size"`
	BlobKey   string    `gorm:"type:varchar(128)" json:"-"`
	URL       string    `gorm:"type:varchar(512)" json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}
