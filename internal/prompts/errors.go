package prompts

import "errors"

// ErrUnknownTemplate is returned by Render for a name with no embedded template.
var ErrUnknownTemplate = errors.New("unknown template")
