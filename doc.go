/*
Package rvth reads and writes RVT-H Reader HDD bank archives and the
standalone GameCube/Wii disc images that banks extract to or import from.

An RVT-H Reader is a Nintendo development appliance: its backing HDD holds a
fixed table of banks, each one the size of a full DVD and able to hold one
GameCube or Wii disc image. This package models that bank table, the
block-level readers needed to address plain, CISO and WBFS images uniformly,
and the sparse-copy engine used to move bank contents to and from standalone
image files. Partition recryption and WAD re-signing live in the wii and wad
subpackages.
*/
package rvth
