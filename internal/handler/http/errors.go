package http

import "errors"

var errSubscriberIDRequired = errors.New("subscriber_id is required")
