package credentials

// StorageError reports a failure reading, parsing or writing the token file.
type StorageError struct {
	Op   string // "load", "save"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	msg := e.Op + " credentials"
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
