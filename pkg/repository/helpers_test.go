package repository

import (
	"io"

	"github.com/sirupsen/logrus"
)

func quietTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
