// Package assist implements the turn and assist correlator: it decides
// when transcript activity warrants an assist request and resolves
// which asynchronous responses are valid to display, dropping
// duplicates and responses superseded by the request watermark.
package assist
