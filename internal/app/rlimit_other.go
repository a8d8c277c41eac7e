//go:build !unix

package app

func raiseFileLimit() {}
