package model

import "time"

// TimeFormat 是记录时间戳的本地化格式 "YYYY-MM-DD HH:MM:SS"。
const TimeFormat = "2006-01-02 15:04:05"

// FormatLocal 将时间按本地时区格式化为记录使用的时间戳字符串。
func FormatLocal(t time.Time) string {
	return t.Local().Format(TimeFormat)
}
