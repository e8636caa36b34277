package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"annotation-service/backend/internal/entity"
)

// InitMySQL 打开 gorm 连接并同步附件表结构
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entity.Attachment{}); err != nil {
		return nil, err
	}
	return db, nil
}
