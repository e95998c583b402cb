package storage

import "mime"

// ContentDisposition 返回 attachment 形式的 Content-Disposition 值，filename 为空时不带文件名。
func ContentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
