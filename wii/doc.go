/*
Package wii implements the Wii/GameCube cryptographic structures this
module needs: tickets, TMDs, partition tables, the common-key/title-key
relationship, and the partition and WAD re-signing pipelines built on top of
them. It operates entirely on in-memory byte buffers — callers own reading
those buffers from (and writing them back to) a disc image or WAD file.
*/
package wii
