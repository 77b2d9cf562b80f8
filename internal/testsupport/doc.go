// Package testsupport holds builders and fakes shared by package tests.
package testsupport
