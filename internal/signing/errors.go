package signing

import "errors"

// Reasons an expectation resolves with a failure. They are reachable with
// errors.Is through the classified error returned by Expectation.Wait.
var (
	ErrWrongMessageID  = errors.New("WRONG_MESSAGE_ID")
	ErrWrongAction     = errors.New("WRONG_ACTION")
	ErrFailedToReceive = errors.New("FAILED_TO_RECEIVE")
)
