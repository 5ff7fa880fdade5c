/*
	Package v3d provides types, constants, and functions that have no other dependencies
	and can be used by all packages within v3d.  This includes voxel coordinates and boxes,
	sample types, the in-memory voxel buffer, the error taxonomy shared by the codecs and the
	tiled volume layer, and logging.
*/
package v3d
