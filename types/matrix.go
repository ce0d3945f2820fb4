package types

// Mat3 is a column-major 3x3 matrix, used to hold a camera's rotation basis
// as delivered by the camera provider contract.
type Mat3 [9]float32

// Ident3 returns the 3x3 identity matrix.
func Ident3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Basis3 builds a column-major basis from its three axis vectors.
func Basis3(col0, col1, col2 Vec3) Mat3 {
	return Mat3{
		col0[0], col0[1], col0[2],
		col1[0], col1[1], col1[2],
		col2[0], col2[1], col2[2],
	}
}

// MulVec3 rotates v by the basis (treats m as column-major: result = sum_i col_i * v[i]).
func (m Mat3) MulVec3(v Vec3) Vec3 {
	col0 := Vec3{m[0], m[1], m[2]}
	col1 := Vec3{m[3], m[4], m[5]}
	col2 := Vec3{m[6], m[7], m[8]}
	return col0.Mul(v[0]).Add(col1.Mul(v[1])).Add(col2.Mul(v[2]))
}

// Transpose returns the transpose of m. For the orthonormal rotation bases
// the camera provider supplies, this is also its inverse.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}
