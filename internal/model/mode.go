package model

import (
	"errors"
	"fmt"
	"strings"
)

// Mode 决定 Context / Keyword 阶段是否调用模型
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

var ErrInvalidMode = errors.New("invalid generation mode")

// ParseMode 解析模式字符串，大小写不敏感
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

func (m Mode) String() string {
	return string(m)
}
