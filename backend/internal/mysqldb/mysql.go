package mysqldb

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Open connects gorm to MySQL. The dsn is expected to carry parseTime=true.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}
