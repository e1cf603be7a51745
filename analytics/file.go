package analytics

import (
	"bytes"

	"github.com/chasex/glog"
)

// Module that can perform transactional logging
type FileLogger struct {
	Logger *glog.Logger
}

// Writes AuditObject to file
func (f *FileLogger) LogAuditObject(ao *AuditObject) {
	var b bytes.Buffer
	b.WriteString(ao.ToJson())
	f.Logger.Debug(b.String())
	f.Logger.Flush()
}

// Writes ValidateObject to file
func (f *FileLogger) LogValidateObject(vo *ValidateObject) {
	var b bytes.Buffer
	b.WriteString(vo.ToJson())
	f.Logger.Debug(b.String())
	f.Logger.Flush()
}

// Method to initialize the analytic module
func NewFileLogger(filename string) (AuditLogger, error) {
	options := glog.LogOptions{
		File:  filename,
		Flag:  glog.LstdFlags,
		Level: glog.Ldebug,
		Mode:  glog.R_Day,
	}
	if logger, err := glog.New(options); err == nil {
		return &FileLogger{
			logger,
		}, nil
	} else {
		return nil, err
	}
}
