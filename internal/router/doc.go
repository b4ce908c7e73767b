// Package router implements the message router.
//
// A Router holds three independent listener registries (text, structured,
// binary) and fans inbound payloads out to them:
//   - Text frames that decode as JSON go to structured listeners
//   - Text frames that do not decode go to text listeners, unchanged
//   - Binary frames go to binary listeners, unchanged
//
// A Router knows nothing about connection state and can be used standalone.
package router
