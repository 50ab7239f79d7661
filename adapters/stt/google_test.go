package stt_test

import (
	"github.com/windrose/skylane/server/adapters/stt"
	"github.com/windrose/skylane/server/domain/repositories"
)

var _ repositories.SpeechToText = (*stt.GoogleSpeechToText)(nil)
