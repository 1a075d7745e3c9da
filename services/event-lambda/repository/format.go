package repository

import (
	"strconv"
	"time"
)

const timeLayout = time.RFC3339

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
