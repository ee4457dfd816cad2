package cli

import (
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

type levelValue zapcore.Level

var _ pflag.Value = (*levelValue)(nil)

func newLevelValue(p *zapcore.Level) *levelValue {
	return (*levelValue)(p)
}

func (lv *levelValue) Set(s string) error {
	var l zapcore.Level
	if err := l.Set(s); err != nil {
		return err
	}
	*lv = levelValue(l)
	return nil
}

func (lv *levelValue) String() string {
	return zapcore.Level(*lv).String()
}

func (lv *levelValue) Type() string {
	return "Log-Level"
}
