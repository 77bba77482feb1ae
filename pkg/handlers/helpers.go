package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// dishIDQuery dish_id クエリパラメータを読む。未指定は nil（全料理）
func dishIDQuery(c *gin.Context) (*int64, error) {
	raw := c.Query("dish_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("dish_id が不正です: %s", raw)
	}
	return &id, nil
}

// intQuery 正の整数クエリパラメータを読む（未指定・不正はデフォルト値）
func intQuery(c *gin.Context, key string, defaultValue, max int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return defaultValue
}

// dateQuery "2006-01-02" 形式の必須クエリパラメータを読む
func dateQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s は必須です（YYYY-MM-DD形式）", key)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s の日付形式が不正です: %s", key, raw)
	}
	return t, nil
}
