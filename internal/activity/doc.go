// Package activity classifies agent status and log text into a UI activity descriptor.
//
// Classification is first-match over lower-cased text, in this order:
//
//  1. calendar keywords ("calendar", "scheduling"), refined by
//     creation ("creating", "schedule"), update ("updating", "modifying")
//     and lookup ("searching", "finding") keywords
//  2. tool keywords ("skill", "tool")
//  3. thinking, which always matches
//
// Classify is pure: each call derives a fresh Descriptor from the text alone.
package activity
